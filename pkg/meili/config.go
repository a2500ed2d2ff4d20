package meili

import (
	"strings"

	"github.com/pkg/errors"
)

type Config struct {
	Host    string `json:"host" yaml:"host" mapstructure:"host"`
	APIKey  string `json:"apiKey" yaml:"apiKey" mapstructure:"apiKey"`
	Timeout int    `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

func (t *Config) Validate() []error {
	var errs = make([]error, 0)
	if t.Host == "" {
		errs = append(errs, errors.Errorf("没有指定 Meilisearch 服务地址"))
	} else if !strings.HasPrefix(t.Host, "http://") && !strings.HasPrefix(t.Host, "https://") {
		errs = append(errs, errors.Errorf("Meilisearch 服务地址必须以 http:// 或 https:// 开头: %s", t.Host))
	}
	return errs
}

func NewDefaultMeiliConfig() *Config {
	return &Config{
		Host:    "http://127.0.0.1:7700",
		Timeout: 30, // 秒
	}
}
