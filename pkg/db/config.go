package db

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Config struct {
	Driver          string `json:"driver" yaml:"driver" mapstructure:"driver"`
	Host            string `json:"host" yaml:"host" mapstructure:"host"`
	Port            int    `json:"port" yaml:"port" mapstructure:"port"`
	Username        string `json:"username" yaml:"username" mapstructure:"username"`
	Password        string `json:"password" yaml:"password" mapstructure:"password"`
	Database        string `json:"database" yaml:"database" mapstructure:"database"`
	Path            string `json:"path,omitempty" yaml:"path,omitempty" mapstructure:"path"`
	Schema          string `json:"schema,omitempty" yaml:"schema,omitempty" mapstructure:"schema"`
	MaxIdleConns    int    `json:"maxIdleConns,omitempty" yaml:"maxIdleConns,omitempty" mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `json:"maxOpenConns,omitempty" yaml:"maxOpenConns,omitempty" mapstructure:"maxOpenConns"`
	ConnMaxLifetime int    `json:"connMaxLifetime,omitempty" yaml:"connMaxLifetime,omitempty" mapstructure:"connMaxLifetime"`
	Debug           bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
}

func (t *Config) Validate() []error {
	var errs = make([]error, 0)
	switch strings.ToLower(t.Driver) {
	case "sqlite":
		if t.Path == "" {
			errs = append(errs, errors.Errorf("sqlite 数据库没有指定文件路径"))
		}
	case "mysql", "postgres":
		if t.Username == "" {
			errs = append(errs, errors.Errorf("连接的数据库用户名为空"))
		}
		if t.Database == "" {
			errs = append(errs, errors.Errorf("没有指定需要连接的数据库名称"))
		}
	case "":
		errs = append(errs, errors.Errorf("没有指定数据库类型（sqlite/mysql/postgres）"))
	default:
		errs = append(errs, errors.Errorf("不支持的数据库类型: %s", t.Driver))
	}
	return errs
}

func NewDefaultDBConfig() *Config {
	return &Config{
		Driver:          "sqlite",
		Host:            "127.0.0.1",
		Port:            3306,
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: 3600, // 1小时
	}
}

func (t *Config) DSN() string {
	switch strings.ToLower(t.Driver) {
	case "sqlite":
		return t.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=Asia/Shanghai search_path=%s",
			t.Host,
			t.Username,
			t.Password,
			t.Database,
			t.Port,
			t.Schema,
		)
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			t.Username,
			t.Password,
			t.Host,
			t.Port,
			t.Database,
		)
	}
}
