package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// decodeSection merges a stored section map into target using json tags.
// Durations may be given as strings ("5m") or nanosecond counts.
func decodeSection(data map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("failed to decode section: %w", err)
	}
	return nil
}

// encodeSection converts settings to a plain map through JSON, with every
// time.Duration field rendered as a string.
func encodeSection(settings interface{}, durations map[string]time.Duration) map[string]interface{} {
	raw, err := json.Marshal(settings)
	if err != nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	for key, d := range durations {
		out[key] = d.String()
	}
	return out
}
