package main

import (
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"

	"dealer-market-go/config"
	"dealer-market-go/dealer"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/market"
	"dealer-market-go/posttrade"
	"dealer-market-go/sim"
)

// 内置三个参数扫描实验：
//   hedging         风险厌恶 gamma × 波动率状态，对冲收益拆解
//   internalization 关闭对冲与层级加价后的订单流内部消化
//   sensitivity     动态分层与固定层级做市商的订单流份额
func main() {
	experiment := flag.String("experiment", "hedging", "实验名: hedging | internalization | sensitivity")
	steps := flag.Int("steps", 2000, "每次运行的步数")
	runs := flag.Int("runs", 5, "每个参数点的重复次数")
	baseSeed := flag.Int64("seed", 1, "起始种子，逐次运行递增")
	flag.Parse()

	log, err := quietLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	switch *experiment {
	case "hedging":
		err = runHedging(log, *steps, *runs, *baseSeed)
	case "internalization":
		err = runInternalization(log, *steps, *runs, *baseSeed)
	case "sensitivity":
		err = runSensitivity(log, *steps, *runs, *baseSeed)
	default:
		err = fmt.Errorf("unknown experiment %q", *experiment)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "实验失败: %v\n", err)
		os.Exit(1)
	}
}

func quietLogger() (*logger.Logger, error) {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

func baseScenario(steps int) config.Scenario {
	cfg := config.DefaultScenario()
	cfg.Steps = steps
	cfg.Logging.Level = "error"
	return cfg
}

// runHedging 对 MM_0 扫描 gamma，在低/高波动率下对比平均奖励与末仓。
func runHedging(log *logger.Logger, steps, runs int, baseSeed int64) error {
	gammas := []float64{0, 0.05, 0.25, 0.5, 1, 100}
	sigmas := map[string]float64{"low": market.SigmaLow, "high": market.SigmaHigh}

	fmt.Println("experiment=hedging")
	fmt.Println("regime,gamma,mean_total,std_total,mean_hedge_cost,mean_abs_final_pos")
	for _, regime := range []string{"low", "high"} {
		for _, gamma := range gammas {
			totals := make([]float64, 0, runs)
			hedgeCosts := make([]float64, 0, runs)
			absPos := make([]float64, 0, runs)
			for r := 0; r < runs; r++ {
				cfg := baseScenario(steps)
				cfg.Seed = baseSeed + int64(r)
				cfg.Market.Sigma = sigmas[regime]
				cfg.Makers[0].Gamma = gamma
				res, err := sim.RunScenario(cfg, sim.Options{Logger: log})
				if err != nil {
					return err
				}
				m := findMaker(res.Summary, "MM_0")
				totals = append(totals, m.TotalReward)
				hedgeCosts = append(hedgeCosts, m.HedgeCost)
				absPos = append(absPos, abs(m.FinalPosition))
			}
			fmt.Printf("%s,%g,%.4f,%.4f,%.4f,%.4f\n",
				regime, gamma,
				stat.Mean(totals, nil), stat.StdDev(totals, nil),
				stat.Mean(hedgeCosts, nil), stat.Mean(absPos, nil))
		}
	}
	return nil
}

// runInternalization 对比开/关对冲下的内部化比率。
// 关对冲的变体同时固定最优档并把层级加价归零，隔离纯内部消化行为。
func runInternalization(log *logger.Logger, steps, runs int, baseSeed int64) error {
	fmt.Println("experiment=internalization")
	fmt.Println("hedging,maker,mean_internalization,mean_total")
	for _, hedging := range []bool{true, false} {
		ratios := map[string][]float64{}
		totals := map[string][]float64{}
		for r := 0; r < runs; r++ {
			cfg := baseScenario(steps)
			cfg.Seed = baseSeed + int64(r)
			for i := range cfg.Makers {
				cfg.Makers[i].DisableHedging = !hedging
				if !hedging {
					cfg.Makers[i].DeltaTier = 0
					cfg.Makers[i].Tiering = dealer.StaticTiering{Tier: 0}
				}
			}
			res, err := sim.RunScenario(cfg, sim.Options{Logger: log})
			if err != nil {
				return err
			}
			for _, m := range res.Summary.Makers {
				ratios[m.MakerID] = append(ratios[m.MakerID], posttrade.InternalizationRatio(res.Store, m.MakerID))
				totals[m.MakerID] = append(totals[m.MakerID], m.TotalReward)
			}
		}
		for _, id := range []string{"MM_0", "MM_1"} {
			fmt.Printf("%t,%s,%.4f,%.4f\n", hedging, id,
				stat.Mean(ratios[id], nil), stat.Mean(totals[id], nil))
		}
	}
	return nil
}

// runSensitivity 动态分层 MM_0 对阵固定二档 MM_1，统计各投资者流向份额。
func runSensitivity(log *logger.Logger, steps, runs int, baseSeed int64) error {
	shares := map[string][]float64{}
	for r := 0; r < runs; r++ {
		cfg := baseScenario(steps)
		cfg.Seed = baseSeed + int64(r)
		cfg.Makers[1].Tiering = dealer.StaticTiering{Tier: 2}
		res, err := sim.RunScenario(cfg, sim.Options{Logger: log})
		if err != nil {
			return err
		}
		for _, f := range res.Summary.Investors {
			shares[f.InvestorID] = append(shares[f.InvestorID], f.MakerShare["MM_0"])
		}
	}

	fmt.Println("experiment=sensitivity")
	fmt.Println("investor,mean_share_adaptive_maker")
	for i := 0; ; i++ {
		id := fmt.Sprintf("INV_%d", i)
		vals, ok := shares[id]
		if !ok {
			break
		}
		fmt.Printf("%s,%.4f\n", id, stat.Mean(vals, nil))
	}
	return nil
}

func findMaker(s posttrade.Summary, id string) posttrade.MakerReport {
	for _, m := range s.Makers {
		if m.MakerID == id {
			return m
		}
	}
	return posttrade.MakerReport{MakerID: id}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
