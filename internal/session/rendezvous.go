package session

import (
	ma "github.com/multiformats/go-multiaddr"
)

// addrExchange 地址学习握手的两标志汇合原语
//
// 两个条件相互独立、到达顺序不限：
//   - 本端已把地址信息送达中继（arriveTold）
//   - 中继已告知本端的外部观测地址（arriveLearned）
//
// 两者都到达后握手完成。值语义，供纯 step 函数使用。
type addrExchange struct {
	toldRelay bool
	learned   ma.Multiaddr
}

// arriveTold 标记「已送出」条件到达
func (x addrExchange) arriveTold() addrExchange {
	x.toldRelay = true
	return x
}

// arriveLearned 标记「已学到」条件到达，记录首个观测地址
func (x addrExchange) arriveLearned(addr ma.Multiaddr) addrExchange {
	if x.learned == nil {
		x.learned = addr
	}
	return x
}

// done 两个条件均已到达
func (x addrExchange) done() bool {
	return x.toldRelay && x.learned != nil
}
