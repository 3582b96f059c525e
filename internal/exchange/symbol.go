package exchange

import (
	"fmt"
	"strings"
	"sync"
)

// 符号翻译是适配器的独占职责：
// 核心边界统一使用 BASE-QUOTE-SWAP（如 BTC-USDT-SWAP），
// 交易所侧使用 BASE/QUOTE:SETTLE（如 BTC/USDT:USDT，结算币与计价币相同）。
// 两种格式在支持的币对集合上互为双射

// Instrument 币对元数据，合约面值只在这里出现
type Instrument struct {
	Canonical string  // BTC-USDT-SWAP
	Base      string  // BTC
	Quote     string  // USDT
	CtVal     float64 // 每张合约对应的币数量，如BTC=0.01
}

// ToWire 规范格式 -> 交易所wire格式
func ToWire(canonical string) (string, error) {
	base, quote, err := SplitCanonical(canonical)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s:%s", base, quote, quote), nil
}

// ToCanonical wire格式 -> 规范格式
func ToCanonical(wire string) (string, error) {
	slash := strings.Split(wire, "/")
	if len(slash) != 2 {
		return "", newError(KindInvalidInstrument, "", "invalid wire symbol: "+wire)
	}
	rest := strings.Split(slash[1], ":")
	if len(rest) != 2 || rest[0] != rest[1] {
		return "", newError(KindInvalidInstrument, "", "invalid wire symbol: "+wire)
	}
	return fmt.Sprintf("%s-%s-SWAP", strings.ToUpper(slash[0]), strings.ToUpper(rest[0])), nil
}

// SplitCanonical 拆出BASE和QUOTE
func SplitCanonical(canonical string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(canonical), "-")
	if len(parts) != 3 || parts[2] != "SWAP" || parts[0] == "" || parts[1] == "" {
		return "", "", newError(KindInvalidInstrument, "", "invalid canonical symbol: "+canonical)
	}
	return parts[0], parts[1], nil
}

// Normalize 宽松归一化，接受 BTC、BTC/USDT、BTC-USDT-SWAP、BTC/USDT:USDT
func Normalize(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", newError(KindInvalidInstrument, "", "empty symbol")
	}
	if strings.Contains(s, "/") {
		if strings.Contains(s, ":") {
			return ToCanonical(s)
		}
		parts := strings.Split(s, "/")
		return fmt.Sprintf("%s-%s-SWAP", parts[0], parts[1]), nil
	}
	if strings.HasSuffix(s, "-SWAP") {
		if _, _, err := SplitCanonical(s); err != nil {
			return "", err
		}
		return s, nil
	}
	// 裸币种默认USDT永续
	return s + "-USDT-SWAP", nil
}

// InstrumentSet 支持的币对集合，元数据从交易所的instrument接口加载后缓存
type InstrumentSet struct {
	mu    sync.RWMutex
	items map[string]Instrument // canonical -> Instrument
}

func NewInstrumentSet() *InstrumentSet {
	return &InstrumentSet{items: make(map[string]Instrument)}
}

// Put 缓存一个币对
func (s *InstrumentSet) Put(inst Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[inst.Canonical] = inst
}

// Get 查找币对元数据
func (s *InstrumentSet) Get(canonical string) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.items[canonical]
	return inst, ok
}

// Supported 币对是否在支持集合内
func (s *InstrumentSet) Supported(canonical string) bool {
	_, ok := s.Get(canonical)
	return ok
}

// CtVal 合约面值。防止下游出现静默的单位错误，张数换算只允许走这里
func (s *InstrumentSet) CtVal(canonical string) (float64, error) {
	inst, ok := s.Get(canonical)
	if !ok {
		return 0, newError(KindInvalidInstrument, "", "unsupported instrument: "+canonical)
	}
	if inst.CtVal <= 0 {
		return 0, newError(KindInvalidInstrument, "", "instrument has no contract value: "+canonical)
	}
	return inst.CtVal, nil
}

// Len 集合大小
func (s *InstrumentSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Symbols 返回全部规范符号
func (s *InstrumentSet) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}

// ContractsToCoin 张数 -> 币数量
func (s *InstrumentSet) ContractsToCoin(canonical string, contracts float64) (float64, error) {
	ctVal, err := s.CtVal(canonical)
	if err != nil {
		return 0, err
	}
	return contracts * ctVal, nil
}

// CoinToContracts 币数量 -> 张数，向下取整到0.01张
func (s *InstrumentSet) CoinToContracts(canonical string, coins float64) (float64, error) {
	ctVal, err := s.CtVal(canonical)
	if err != nil {
		return 0, err
	}
	return floorFloat(coins/ctVal, 2), nil
}
