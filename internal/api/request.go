package api

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ListRequest is the query of GET /api/v1/ls. An absent path lists the root.
type ListRequest struct {
	Path string `mapstructure:"path"`
}

// PathRequest is the query of every single-path operation.
type PathRequest struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TransferRequest is the query of mv and cp.
type TransferRequest struct {
	From string `mapstructure:"from" validate:"required"`
	To   string `mapstructure:"to" validate:"required"`
}

// DownloadRequest is the query of GET /api/v1/download. Peek accepts any
// boolean spelling strconv.ParseBool does.
type DownloadRequest struct {
	Path string `mapstructure:"path" validate:"required"`
	Peek bool   `mapstructure:"peek"`
}

var validate = validator.New()

// decodeQuery fills out from the first value of each query parameter and
// validates the result. Unknown parameters are ignored.
func decodeQuery(q url.Values, out any) error {
	flat := make(map[string]any, len(q))
	for key, values := range q {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(flat); err != nil {
		return fmt.Errorf("decode query: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate query: %w", err)
	}
	return nil
}
