package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Yueren-Wang/oauth2gate/internal/oauth2"
)

// headerMatcherFlag accumulates "Name:Regexp" pairs into HeaderMatchers
// across repeated flag occurrences, e.g.:
//
//	-pass-through-header "X-Internal-Request:.+" -pass-through-header "X-Debug:true"
//
type headerMatcherFlag struct {
	matchers []oauth2.HeaderMatcher
	raw      []string
}

func (f *headerMatcherFlag) Set(value string) error {
	name, pattern, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("invalid header matcher %q, expected \"Name:Regexp\"", value)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid header matcher regexp %q: %w", pattern, err)
	}

	f.matchers = append(f.matchers, oauth2.HeaderRegexpMatcher{Name: name, Value: re})
	f.raw = append(f.raw, value)
	return nil
}

func (f *headerMatcherFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.raw, ",")
}

func (f *headerMatcherFlag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}
	for _, v := range values {
		if err := f.Set(v); err != nil {
			return err
		}
	}
	return nil
}
