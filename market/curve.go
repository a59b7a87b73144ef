package market

import "math"

const (
	volumeEpsilon       = 1e-9
	maxNormalizedVolume = 0.999
)

// ReferenceHalfSpread 返回成交量 v 对应的参考半价差成本。
// v<=0 返回基础半价差 s0/2；归一化量被限制在 1 以下避免发散。
func (e *Environment) ReferenceHalfSpread(v float64) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.referenceHalfSpreadLocked(v)
}

func (e *Environment) referenceHalfSpreadLocked(v float64) float64 {
	base := e.baseSpread / 2
	if v <= volumeEpsilon {
		return base
	}
	vt := v / e.cfg.VMax
	if vt >= maxNormalizedVolume {
		vt = maxNormalizedVolume
	}
	if e.logForm {
		return -base * math.Log(1-vt) / vt
	}
	term := math.Pow(1-vt, 1/e.omega)
	return base * (e.omega / vt) * (1 - term)
}

// BaseHalfSpread 当前基础半价差 s0/2。
func (e *Environment) BaseHalfSpread() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseSpread / 2
}
