package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

type stats struct {
	steps           int
	spreadRevenue   float64
	positionRevenue float64
	hedgeCost       float64
	riskCost        float64
	total           float64
	minStep         float64
	maxStep         float64
}

func (s *stats) add(spread, position, hedge, risk, total float64) {
	s.steps++
	s.spreadRevenue += spread
	s.positionRevenue += position
	s.hedgeCost += hedge
	s.riskCost += risk
	s.total += total
	if s.steps == 1 || total < s.minStep {
		s.minStep = total
	}
	if s.steps == 1 || total > s.maxStep {
		s.maxStep = total
	}
}

// 汇总 cmd/sim 写出的奖励 CSV：按做市商分解各奖励分量。
func main() {
	csvPath := flag.String("rewards", "rewards.csv", "奖励序列 CSV 路径")
	maker := flag.String("maker", "", "仅统计指定做市商 (默认全量)")
	fromStep := flag.Int("fromStep", 0, "仅统计此步之后的记录")
	flag.Parse()

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法读取 CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取表头失败: %v\n", err)
		os.Exit(1)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"step", "maker", "spread_revenue", "position_revenue", "hedge_cost", "risk_cost", "total"} {
		if _, ok := col[required]; !ok {
			fmt.Fprintf(os.Stderr, "CSV 缺少列: %s\n", required)
			os.Exit(1)
		}
	}

	byMaker := make(map[string]*stats)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取记录出错: %v\n", err)
			os.Exit(1)
		}
		step, _ := strconv.Atoi(row[col["step"]])
		if step <= *fromStep {
			continue
		}
		id := row[col["maker"]]
		if *maker != "" && id != *maker {
			continue
		}
		st := byMaker[id]
		if st == nil {
			st = &stats{}
			byMaker[id] = st
		}
		st.add(
			toFloat(row[col["spread_revenue"]]),
			toFloat(row[col["position_revenue"]]),
			toFloat(row[col["hedge_cost"]]),
			toFloat(row[col["risk_cost"]]),
			toFloat(row[col["total"]]),
		)
	}

	ids := make([]string, 0, len(byMaker))
	for id := range byMaker {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("统计文件: %s\n", *csvPath)
	if *fromStep > 0 {
		fmt.Printf("起始步: %d\n", *fromStep)
	}
	for _, id := range ids {
		st := byMaker[id]
		fmt.Printf("[%s] 步数: %d\n", id, st.steps)
		fmt.Printf("  价差收益: %.6f\n", st.spreadRevenue)
		fmt.Printf("  仓位收益: %.6f\n", st.positionRevenue)
		fmt.Printf("  对冲成本: %.6f\n", st.hedgeCost)
		fmt.Printf("  风险成本: %.6f\n", st.riskCost)
		fmt.Printf("  总奖励: %.6f (单步 min %.6f / max %.6f)\n", st.total, st.minStep, st.maxStep)
	}
}

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
