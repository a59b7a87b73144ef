package market

// TradeEvent 单笔成交事件，taker 视角的带符号数量。
type TradeEvent struct {
	Step   int     `json:"step"`
	Kind   string  `json:"kind"` // investor 或 hedge
	Maker  string  `json:"maker"`
	Taker  string  `json:"taker"`
	Volume float64 `json:"volume"`
	Price  float64 `json:"price"`
	Mid    float64 `json:"mid"`
}

// StepEvent 单步汇总事件。
type StepEvent struct {
	Step      int                `json:"step"`
	Mid       float64            `json:"mid"`
	Trades    int                `json:"trades"`
	Hedges    int                `json:"hedges"`
	Positions map[string]float64 `json:"positions"`
	Rewards   map[string]float64 `json:"rewards"`
}

// Publisher 一个轻量事件分发器。
type Publisher struct {
	stepSubs  []chan StepEvent
	tradeSubs []chan TradeEvent
}

func NewPublisher() *Publisher {
	return &Publisher{
		stepSubs:  make([]chan StepEvent, 0),
		tradeSubs: make([]chan TradeEvent, 0),
	}
}

func (p *Publisher) SubscribeStep() <-chan StepEvent {
	ch := make(chan StepEvent, 1)
	p.stepSubs = append(p.stepSubs, ch)
	return ch
}

func (p *Publisher) SubscribeTrade() <-chan TradeEvent {
	ch := make(chan TradeEvent, 1)
	p.tradeSubs = append(p.tradeSubs, ch)
	return ch
}

func (p *Publisher) PublishStep(e StepEvent) {
	for _, ch := range p.stepSubs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (p *Publisher) PublishTrade(t TradeEvent) {
	for _, ch := range p.tradeSubs {
		select {
		case ch <- t:
		default:
		}
	}
}
