package models

import (
	"testing"
)

func validMarketParams() MarketParams {
	return MarketParams{
		InitialValue: 22500,
		HorizonDays:  5,
		SubSteps:     10,
		Regimes: []Regime{
			{Name: "calm", Mu: 0.05, Sigma: 0.12, Theta: 0.1},
			{Name: "stressed", Mu: -0.1, Sigma: 0.35, Theta: -0.2},
		},
		Transition:     TransitionMatrix{{0.95, 0.05}, {0.1, 0.9}},
		JumpIntensity:  1.0,
		JumpMean:       -0.05,
		JumpVolatility: 0.2,
	}
}

func TestTransitionMatrixValidate(t *testing.T) {
	cases := []struct {
		name    string
		matrix  TransitionMatrix
		regimes int
		wantErr bool
	}{
		{"valid", TransitionMatrix{{0.9, 0.1}, {0.2, 0.8}}, 2, false},
		{"empty", TransitionMatrix{}, 2, true},
		{"wrong dimension", TransitionMatrix{{1.0}}, 2, true},
		{"not square", TransitionMatrix{{0.5, 0.5}, {1.0}}, 2, true},
		{"row does not sum to one", TransitionMatrix{{0.9, 0.2}, {0.2, 0.8}}, 2, true},
		{"negative probability", TransitionMatrix{{1.1, -0.1}, {0.2, 0.8}}, 2, true},
		{"within tolerance", TransitionMatrix{{0.9000000001, 0.1}, {0.2, 0.8}}, 2, false},
	}
	for _, c := range cases {
		err := c.matrix.Validate(c.regimes)
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestMarketParamsValidate(t *testing.T) {
	if err := validMarketParams().Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*MarketParams)
	}{
		{"negative initial value", func(p *MarketParams) { p.InitialValue = -1 }},
		{"zero horizon", func(p *MarketParams) { p.HorizonDays = 0 }},
		{"zero sub steps", func(p *MarketParams) { p.SubSteps = 0 }},
		{"no regimes", func(p *MarketParams) { p.Regimes = nil }},
		{"bad regime sigma", func(p *MarketParams) { p.Regimes[0].Sigma = 0 }},
		{"negative jump intensity", func(p *MarketParams) { p.JumpIntensity = -1 }},
		{"zero jump volatility", func(p *MarketParams) { p.JumpVolatility = 0 }},
		{"negative ema window", func(p *MarketParams) { p.EMAWindow = -1 }},
		{"negative oi target", func(p *MarketParams) { p.OpenInterestTarget = -1 }},
	}
	for _, c := range cases {
		p := validMarketParams()
		c.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestPathParamsValidate(t *testing.T) {
	valid := PathParams{InitialValue: 100, HorizonYears: 1, Steps: 252, Drift: 0.1, Volatility: 0.2}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*PathParams)
	}{
		{"negative initial value", func(p *PathParams) { p.InitialValue = -1 }},
		{"zero horizon", func(p *PathParams) { p.HorizonYears = 0 }},
		{"zero steps", func(p *PathParams) { p.Steps = 0 }},
		{"zero volatility", func(p *PathParams) { p.Volatility = 0 }},
		{"negative jump intensity", func(p *PathParams) { p.JumpIntensity = -1 }},
	}
	for _, c := range cases {
		p := valid
		c.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
