package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Fronts     Fronts     `yaml:"fronts" json:"fronts"`
	Commitment Commitment `yaml:"commitment" json:"commitment"`
	Pressure   Pressure   `yaml:"pressure" json:"pressure"`
	Offers     Offers     `yaml:"offers" json:"offers"`
	Acceptance Acceptance `yaml:"acceptance" json:"acceptance"`
	Territory  Territory  `yaml:"territory" json:"territory"`
}

type Fronts struct {
	BreachThreshold int `yaml:"breach_threshold" json:"breach_threshold"`
}

type Commitment struct {
	// Milli-points contributed by one active, assigned formation.
	PointsPerFormation int `yaml:"points_per_formation" json:"points_per_formation"`
}

type Pressure struct {
	BreachCap                int `yaml:"breach_cap" json:"breach_cap"`
	UnsuppliedFormationsUnit int `yaml:"unsupplied_formations_unit" json:"unsupplied_formations_unit"`
	UnsuppliedMilitiaUnit    int `yaml:"unsupplied_militia_unit" json:"unsupplied_militia_unit"`
	CollapsePoints           int `yaml:"collapse_points" json:"collapse_points"`
	// 0 disables capital accrual.
	CapitalPerPressure int `yaml:"capital_per_pressure" json:"capital_per_pressure"`
}

type Offers struct {
	TriggerThreshold int `yaml:"trigger_threshold" json:"trigger_threshold"`
	// Pressure at or above TriggerThreshold*CeasefireMultiplier yields a
	// general ceasefire instead of a local freeze.
	CeasefireMultiplier   int `yaml:"ceasefire_multiplier" json:"ceasefire_multiplier"`
	LocalFreezeTurns      int `yaml:"local_freeze_turns" json:"local_freeze_turns"`
	GeneralCeasefireTurns int `yaml:"general_ceasefire_turns" json:"general_ceasefire_turns"`
}

type Acceptance struct {
	AcceptBar int `yaml:"accept_bar" json:"accept_bar"`

	BaseWill           int `yaml:"base_will" json:"base_will"`
	PressureCap        int `yaml:"pressure_cap" json:"pressure_cap"`
	GuaranteeBonus     int `yaml:"guarantee_bonus" json:"guarantee_bonus"`
	CostDivisor        int `yaml:"cost_divisor" json:"cost_divisor"`
	HumiliationPenalty int `yaml:"humiliation_penalty" json:"humiliation_penalty"`
	WarningPenalty     int `yaml:"warning_penalty" json:"warning_penalty"`
	TradeFairnessCap   int `yaml:"trade_fairness_cap" json:"trade_fairness_cap"`
}

type Territory struct {
	TransferCostPerSettlement    int `yaml:"transfer_cost_per_settlement" json:"transfer_cost_per_settlement"`
	RecognitionCostPerSettlement int `yaml:"recognition_cost_per_settlement" json:"recognition_cost_per_settlement"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Fronts: Fronts{
			BreachThreshold: 8,
		},
		Commitment: Commitment{
			PointsPerFormation: 1000,
		},
		Pressure: Pressure{
			BreachCap:                3,
			UnsuppliedFormationsUnit: 5,
			UnsuppliedMilitiaUnit:    10,
			CollapsePoints:           1,
			CapitalPerPressure:       5,
		},
		Offers: Offers{
			TriggerThreshold:      10,
			CeasefireMultiplier:   2,
			LocalFreezeTurns:      4,
			GeneralCeasefireTurns: 0,
		},
		Acceptance: Acceptance{
			AcceptBar:          0,
			BaseWill:           -5,
			PressureCap:        20,
			GuaranteeBonus:     3,
			CostDivisor:        2,
			HumiliationPenalty: 4,
			WarningPenalty:     2,
			TradeFairnessCap:   5,
		},
		Territory: Territory{
			TransferCostPerSettlement:    2,
			RecognitionCostPerSettlement: 1,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize replaces non-positive divisors with their defaults; a zero
// divisor would make every flooring step undefined.
func (t *Tuning) Normalize() {
	d := Defaults()
	if strings.TrimSpace(t.ProtocolVersion) == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.Commitment.PointsPerFormation <= 0 {
		t.Commitment.PointsPerFormation = d.Commitment.PointsPerFormation
	}
	if t.Pressure.UnsuppliedFormationsUnit <= 0 {
		t.Pressure.UnsuppliedFormationsUnit = d.Pressure.UnsuppliedFormationsUnit
	}
	if t.Pressure.UnsuppliedMilitiaUnit <= 0 {
		t.Pressure.UnsuppliedMilitiaUnit = d.Pressure.UnsuppliedMilitiaUnit
	}
	if t.Pressure.CapitalPerPressure < 0 {
		t.Pressure.CapitalPerPressure = 0
	}
	if t.Offers.CeasefireMultiplier <= 0 {
		t.Offers.CeasefireMultiplier = d.Offers.CeasefireMultiplier
	}
	if t.Acceptance.CostDivisor <= 0 {
		t.Acceptance.CostDivisor = d.Acceptance.CostDivisor
	}
}

func (t Tuning) Validate() error {
	if t.Fronts.BreachThreshold < 0 {
		return errors.New("fronts.breach_threshold must be >= 0")
	}
	if t.Pressure.BreachCap < 0 {
		return errors.New("pressure.breach_cap must be >= 0")
	}
	if t.Pressure.CollapsePoints < 0 {
		return errors.New("pressure.collapse_points must be >= 0")
	}
	if t.Offers.TriggerThreshold <= 0 {
		return errors.New("offers.trigger_threshold must be > 0")
	}
	if t.Offers.LocalFreezeTurns < 0 || t.Offers.GeneralCeasefireTurns < 0 {
		return errors.New("offers freeze durations must be >= 0")
	}
	if t.Acceptance.PressureCap < 0 || t.Acceptance.TradeFairnessCap < 0 {
		return errors.New("acceptance caps must be >= 0")
	}
	if t.Territory.TransferCostPerSettlement < 0 || t.Territory.RecognitionCostPerSettlement < 0 {
		return errors.New("territory costs must be >= 0")
	}
	return nil
}
