package exchange

import (
	"sync"
	"swapdesk/internal/model"
	"swapdesk/pkg/logger"
	"time"
)

// Manager 按账户凭证缓存适配器实例并做引用计数。
// 适配器的生命周期由Manager显式持有，不依赖包级单例：
// 同一凭证的并发使用共享一个实例，引用归零后实例被释放
type Manager struct {
	mu      sync.Mutex
	clients map[string]*managedClient // apiKey -> client
	timeout time.Duration

	// 构造函数可替换，测试时注入假适配器
	factory func(apiKey, secret, passphrase string, timeout time.Duration) (Exchange, error)
}

type managedClient struct {
	ex   Exchange
	refs int
}

func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		clients: make(map[string]*managedClient),
		timeout: timeout,
		factory: func(apiKey, secret, passphrase string, timeout time.Duration) (Exchange, error) {
			return NewOkxExchange(apiKey, secret, passphrase, timeout)
		},
	}
}

// WithFactory 替换适配器构造函数
func (m *Manager) WithFactory(f func(apiKey, secret, passphrase string, timeout time.Duration) (Exchange, error)) *Manager {
	m.factory = f
	return m
}

// Acquire 取得账户对应的适配器，引用计数+1。
// 凭证未配置或初始化失败时返回分类错误
func (m *Manager) Acquire(account *model.Account) (Exchange, error) {
	if !account.HasCredentials() {
		return nil, newError(KindAuth, "", "exchange credentials not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[account.OkxApiKey]; ok {
		c.refs++
		return c.ex, nil
	}

	ex, err := m.factory(account.OkxApiKey, account.OkxSecret, account.OkxPassphrase, m.timeout)
	if err != nil {
		return nil, err
	}
	m.clients[account.OkxApiKey] = &managedClient{ex: ex, refs: 1}
	logger.Infof("exchange client created for account %d, instruments=%d",
		account.ID, ex.Instruments().Len())
	return ex, nil
}

// Release 引用计数-1，归零后移除实例
func (m *Manager) Release(account *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[account.OkxApiKey]
	if !ok {
		return
	}
	c.refs--
	if c.refs <= 0 {
		delete(m.clients, account.OkxApiKey)
	}
}

// Active 当前持有的实例数
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
