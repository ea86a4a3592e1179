package kv

import (
	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encode(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, errors.New("cannot encode nil value")
	}
	enc, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, enc), nil
}

func decode(data []byte, dst interface{}) error {
	data, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
