package nsc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	"go.uber.org/zap"

	"meilibridge/pkg/util"
)

var (
	singleton *NatsPubClient
	once      sync.Once
)

// NatsPubClient 同步结果事件的发布端。Enabled=false 时不初始化，
// 发布是尽力而为的：失败只记日志，不影响同步周期的成败。
type NatsPubClient struct {
	clientName string
	cfg        *NatsConfig
	nc         *nats.Conn
}

func InitNats(clientName string, config *NatsConfig) error {
	zap.S().Info("***初始化NATS")
	var hasError error
	once.Do(func() {
		client := &NatsPubClient{
			clientName: clientName,
			cfg:        config,
		}
		defaultAccount, err := config.GetDefaultAccount()
		if err != nil {
			hasError = err
			return
		}
		if err := client.Connect(defaultAccount); err != nil {
			hasError = err
			return
		}
		singleton = client
	})
	return hasError
}

func (nsc *NatsPubClient) Connect(account *NatsAccount) error {
	if nsc.nc != nil {
		return nil
	}
	opt := nats.GetDefaultOptions()
	opt.Name = fmt.Sprintf("%s %s", util.GetVersion().AppName, util.GetVersion().Version)
	opt.User = account.UserName
	opt.Password = account.Password
	opt.Nkey = account.NKey
	opt.Url = nsc.cfg.Endpoint
	opt.NoCallbacksAfterClientClose = true
	opt.ReconnectWait = 2 * time.Second //重试等待2s
	opt.MaxReconnect = -1               //永远重试
	opt.AllowReconnect = true
	opt.ReconnectJitter = 500 * time.Millisecond
	opt.DisconnectedErrCB = func(conn *nats.Conn, err error) {
		zap.S().Debugf("*** 断开连接...%v ***", err)
	}
	opt.ReconnectedCB = func(conn *nats.Conn) {
		zap.S().Debugf("*** 已重连 ***")
	}
	opt.ConnectedCB = func(conn *nats.Conn) {
		zap.S().Debugf("*** NATS 已连接 ***")
	}

	if account.Seed != "" {
		opt.SignatureCB = func(b []byte) ([]byte, error) {
			sk, err := nkeys.FromSeed(util.StringToBytes(account.Seed))
			if err != nil {
				return nil, err
			}
			return sk.Sign(b)
		}
	}

	nc, err := opt.Connect()
	if err != nil {
		return err
	}
	nc.SetErrorHandler(func(conn *nats.Conn, sub *nats.Subscription, natsErr error) {
		zap.S().Errorf("Nats 捕获错误: %v", natsErr)
	})
	nsc.nc = nc
	return nil
}

// PublishJSON 把对象序列化后发布到表对应的子主题
func (nsc *NatsPubClient) PublishJSON(table string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return nsc.nc.Publish(nsc.cfg.SubjectFor(table), payload)
}

func (nsc *NatsPubClient) Close() {
	if nsc.nc != nil {
		_ = nsc.nc.Drain()
		nsc.nc.Close()
		zap.S().Debugf("*** NATS 已经关闭 ***")
	}
}

func GetNatsClient() *NatsPubClient {
	return singleton
}

func (nsc *NatsPubClient) GetNatsConn() *nats.Conn {
	return nsc.nc
}
