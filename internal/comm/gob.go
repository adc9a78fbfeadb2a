package comm

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/opencoupler/core/internal/core"
)

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %v: %w", err, core.ErrTransport.Error())
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %v: %w", err, core.ErrTransport.Error())
	}
	return nil
}
