package strategy

import (
	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// MAPullback buys a rising-volume up day that pulls back to the support MA
// while the support MA sits above a rising base MA. It exits on a close
// below the support MA.
type MAPullback struct {
	p Params

	support indicator.Spec
	base    indicator.Spec
	volume  indicator.Spec
}

func NewMAPullback(p Params) (*MAPullback, error) {
	for name, v := range map[string]int{
		"support_window": p.SupportWindow,
		"base_window":    p.BaseWindow,
		"volume_window":  p.VolumeWindow,
	} {
		if err := positive(name, v); err != nil {
			return nil, err
		}
	}
	return &MAPullback{
		p:       p,
		support: indicator.Spec{Kind: indicator.KindSMA, Period: p.SupportWindow},
		base:    indicator.Spec{Kind: indicator.KindSMA, Period: p.BaseWindow},
		volume:  indicator.Spec{Kind: indicator.KindVolumeSMA, Period: p.VolumeWindow},
	}, nil
}

func (s *MAPullback) Name() string { return "ma_pullback" }

func (s *MAPullback) Indicators() []indicator.Spec {
	return []indicator.Spec{s.support, s.base, s.volume}
}

func (s *MAPullback) GenerateSignals(bars []model.Bar, set indicator.Set) ([]model.Signal, error) {
	support, err := series(set, s.support)
	if err != nil {
		return nil, err
	}
	base, err := series(set, s.base)
	if err != nil {
		return nil, err
	}
	volume, err := series(set, s.volume)
	if err != nil {
		return nil, err
	}

	signals := holds(bars)
	long := false
	for i := 2; i < len(bars); i++ {
		j := i - 1
		b := bars[j]
		if !support.Valid(j) || !base.Valid(j-1) || !volume.Valid(j) {
			continue
		}

		if long {
			if b.Close < support[j] {
				signals[i].Kind = model.SignalExitLong
				signals[i].Level = support[j]
				signals[i].Reason = "close below support MA"
				long = false
			}
			continue
		}

		uptrend := support[j] > base[j] && base[j] > base[j-1]
		pullback := b.Low <= support[j]*(1+s.p.SupportBand) && b.Close > support[j]
		confirm := b.Volume > volume[j] && b.Close > b.Open
		if uptrend && pullback && confirm {
			signals[i] = entry(signals[i], model.SignalEnterLong, 1, 0, support[j], "pullback with volume")
			long = true
		}
	}
	return signals, nil
}
