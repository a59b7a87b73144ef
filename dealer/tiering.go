package dealer

import "sort"

// TieringPolicy 把投资者收益估计映射为层级分配。
// Assign 返回新的层级表；DefaultTier 给出未分配投资者的层级。
type TieringPolicy interface {
	Assign(yields map[string]float64, numTiers int) map[string]int
	DefaultTier(numTiers int) int
}

// YieldTiering 按收益率降序做分位数分层：收益最高的投资者进入第 0 档。
// 并列收益按投资者 id 升序排位，保证结果确定。
type YieldTiering struct{}

func (YieldTiering) Assign(yields map[string]float64, numTiers int) map[string]int {
	if len(yields) == 0 {
		return nil
	}
	type entry struct {
		id    string
		yield float64
	}
	entries := make([]entry, 0, len(yields))
	for id, y := range yields {
		entries = append(entries, entry{id: id, yield: y})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].yield == entries[j].yield {
			return entries[i].id < entries[j].id
		}
		return entries[i].yield > entries[j].yield
	})

	n := len(entries)
	out := make(map[string]int, n)
	for rank, e := range entries {
		tier := rank * numTiers / n
		if tier > numTiers-1 {
			tier = numTiers - 1
		}
		out[e.id] = tier
	}
	return out
}

func (YieldTiering) DefaultTier(numTiers int) int {
	return numTiers - 1
}

// StaticTiering 固定层级分配，关闭动态分层的策略变体。
// Assignments 中未出现的投资者一律落在 Tier。
type StaticTiering struct {
	Tier        int
	Assignments map[string]int
}

func (s StaticTiering) Assign(yields map[string]float64, numTiers int) map[string]int {
	if len(s.Assignments) == 0 {
		return nil
	}
	out := make(map[string]int, len(s.Assignments))
	for id, tier := range s.Assignments {
		if tier < 0 {
			tier = 0
		}
		if tier > numTiers-1 {
			tier = numTiers - 1
		}
		out[id] = tier
	}
	return out
}

func (s StaticTiering) DefaultTier(numTiers int) int {
	tier := s.Tier
	if tier < 0 {
		tier = 0
	}
	if tier > numTiers-1 {
		tier = numTiers - 1
	}
	return tier
}
