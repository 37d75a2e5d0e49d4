package scoring

import "fmt"

// ScoreCard collects the outcome of one evaluation pass. Each document starts
// at 100 points; penalties subtract, bonuses add up to the cap. The score has
// no lower bound: strongly negative values tell downstream triage how far
// past the review threshold a document landed.
type ScoreCard struct {
	TotalScore    int      `json:"totalScore"`
	Penalties     []string `json:"penalties"`
	Signals       []string `json:"signals"`
	TemplateMatch bool     `json:"templateMatch"`
}

// NewScoreCard returns a fresh card at the starting score.
func NewScoreCard() *ScoreCard {
	return &ScoreCard{
		TotalScore: 100,
		Penalties:  []string{},
		Signals:    []string{},
	}
}

// AddPenalty subtracts points and records the reason.
func (c *ScoreCard) AddPenalty(points int, reason string) {
	c.TotalScore -= points
	c.Penalties = append(c.Penalties, fmt.Sprintf("-%d points: %s", points, reason))
}

// AddBonus adds points, capped at 100, and records the reason as a signal.
func (c *ScoreCard) AddBonus(points int, reason string) {
	c.TotalScore += points
	if c.TotalScore > 100 {
		c.TotalScore = 100
	}
	c.Signals = append(c.Signals, fmt.Sprintf("+%d points: %s", points, reason))
}

// AddSignal records an informational finding without score impact.
func (c *ScoreCard) AddSignal(signal string) {
	c.Signals = append(c.Signals, "INFO: "+signal)
}
