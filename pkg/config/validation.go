package config

import (
	"reflect"

	"gopkg.in/yaml.v3"
)

// Validate checks cfg with the loader's rules.
func (c *Config) Validate() error {
	return (&ViperLoader{}).Validate(c)
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

// Redacted renders the configuration as YAML with every value that came
// from the secrets file masked. Pass the secrets Config returned by
// LoadWithSecrets.
func (c *Config) Redacted(secrets *Config) string {
	if secrets == nil {
		return c.String()
	}
	masked := *c
	mask(reflect.ValueOf(&masked).Elem(), reflect.ValueOf(secrets).Elem())
	return masked.String()
}

// mask blanks string fields of v that are set in secret. Non-string
// secrets are zeroed.
func mask(v, secret reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		f, s := v.Field(i), secret.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.Struct:
			mask(f, s)
		case reflect.String:
			if s.String() != "" {
				f.SetString("***")
			}
		case reflect.Slice:
			if s.Len() > 0 {
				f.Set(reflect.MakeSlice(f.Type(), 0, 0))
			}
		default:
			if !s.IsZero() {
				f.Set(reflect.Zero(f.Type()))
			}
		}
	}
}
