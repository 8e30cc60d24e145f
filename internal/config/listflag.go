package config

import "strings"

// listFlag is a flag.Value accepting a comma-separated list, for the
// handful of options oauth2gate takes as a set (auth scopes, resources).
// Header matchers use headerMatcherFlag instead.
type listFlag struct {
	values []string
}

func commaListFlag() *listFlag {
	return &listFlag{}
}

func (lf *listFlag) Set(value string) error {
	if value == "" {
		lf.values = nil
		return nil
	}
	lf.values = strings.Split(value, ",")
	return nil
}

func (lf *listFlag) String() string {
	if lf == nil {
		return ""
	}
	return strings.Join(lf.values, ",")
}

func (lf *listFlag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}
	lf.values = values
	return nil
}
