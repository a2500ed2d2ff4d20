package nsc

import (
	"fmt"
)

type NatsAccount struct {
	UserName string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	NKey     string `json:"nkey" yaml:"nkey" mapstructure:"nkey"`
	Seed     string `json:"seed" yaml:"seed" mapstructure:"seed"`
}

type NatsConfig struct {
	Enabled            bool                    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Endpoint           string                  `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Account            map[string]*NatsAccount `json:"account" yaml:"account" mapstructure:"account"`
	DefaultAccountName string                  `json:"defaultAccountName" yaml:"defaultAccountName" mapstructure:"defaultAccountName"`
	SubjectName        string                  `json:"subjectName" yaml:"subjectName" mapstructure:"subjectName"`
}

func (n *NatsConfig) Validate() error {
	if !n.Enabled {
		return nil
	}
	if len(n.Endpoint) == 0 {
		return fmt.Errorf("尚未定义 NATS 服务地址")
	}
	if len(n.SubjectName) == 0 {
		return fmt.Errorf("尚未定义主题")
	}
	return nil
}

func NewDefaultNatsConfig() *NatsConfig {
	return &NatsConfig{
		Endpoint:           "nats://127.0.0.1:4222",
		DefaultAccountName: "",
		Account:            make(map[string]*NatsAccount),
		SubjectName:        "meilibridge.sync.summary",
	}
}

// SubjectFor 每张表发布到各自的子主题，订阅方可以按表过滤
func (n *NatsConfig) SubjectFor(table string) string {
	if table == "" {
		return n.SubjectName
	}
	return n.SubjectName + "." + table
}

func (n *NatsConfig) GetDefaultAccount() (*NatsAccount, error) {
	if n.DefaultAccountName == "" {
		return &NatsAccount{}, nil
	}
	if a, ok := n.Account[n.DefaultAccountName]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("无法找到 %s 账号定义", n.DefaultAccountName)
}
