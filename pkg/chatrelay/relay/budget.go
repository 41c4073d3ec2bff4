package relay

import (
	"fmt"
	"math"
)

// DefaultPricePer1K is the premium tier price in dollars per 1000 tokens.
const DefaultPricePer1K = 0.045

// EngineTier selects which model serves a request.
type EngineTier int

const (
	TierStandard EngineTier = iota
	TierPremium
)

// String returns the tier label.
func (t EngineTier) String() string {
	if t == TierPremium {
		return "premium"
	}
	return "standard"
}

// Budget applies the tier policy and meters premium usage.
type Budget struct {
	// PricePer1K converts dollars to tokens.
	PricePer1K float64

	// StandardModel and PremiumModel name the model behind each tier.
	StandardModel string
	PremiumModel  string
}

// Model returns the model name for a tier.
func (b *Budget) Model(tier EngineTier) string {
	if tier == TierPremium {
		return b.PremiumModel
	}
	return b.StandardModel
}

// EngineFor returns premium while the conversation has tokens left.
func (b *Budget) EngineFor(conv *Conversation) EngineTier {
	if conv.Tokens() > 0 {
		return TierPremium
	}
	return TierStandard
}

// TokensFor converts a dollar amount to tokens, rounding down.
func (b *Budget) TokensFor(dollars float64) int64 {
	if dollars <= 0 || b.price() <= 0 {
		return 0
	}
	// The epsilon absorbs float error so exact multiples of the price are not
	// rounded down by one.
	tokens := math.Floor(dollars/b.price()*1000 + 1e-9)
	if tokens >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(tokens)
}

// Fund adds the tokens bought with dollars and describes the new state.
func (b *Budget) Fund(conv *Conversation, dollars float64) string {
	add := b.TokensFor(dollars)
	conv.mu.Lock()
	if add > math.MaxInt64-conv.tokens {
		conv.tokens = math.MaxInt64
	} else {
		conv.tokens += add
	}
	conv.mu.Unlock()
	return b.Describe(conv)
}

// Charge deducts used tokens, flooring at zero. It reports true only when
// this call moved a positive budget to zero.
func (b *Budget) Charge(conv *Conversation, used int64) (exhausted bool) {
	if used <= 0 {
		return false
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()

	before := conv.tokens
	conv.tokens = max(before-used, 0)
	return before > 0 && conv.tokens == 0
}

// Describe reports the current tier and the remaining allowance.
func (b *Budget) Describe(conv *Conversation) string {
	tokens := conv.Tokens()
	tier := b.EngineFor(conv)
	dollars := float64(tokens) / 1000 * b.price()
	return fmt.Sprintf("Currently using the %s model (%s). %d premium tokens remaining ($%.2f).",
		tier, b.Model(tier), tokens, dollars)
}

// ExhaustedNotice is sent once when the premium allowance runs out.
func (b *Budget) ExhaustedNotice() string {
	return fmt.Sprintf("Premium tokens used up. Switching back to %s. Use !paid to add more.", b.StandardModel)
}

func (b *Budget) price() float64 {
	if b.PricePer1K <= 0 {
		return DefaultPricePer1K
	}
	return b.PricePer1K
}
