package tracker

import "fmt"

// Decision is the outcome of evaluating the alert condition for one tick.
type Decision struct {
	// Fire means the alert condition holds and a notification should be
	// attempted.
	Fire bool

	// Reset means the product's triggered state should be cleared before
	// any further evaluation, re-arming the alert.
	Reset bool
}

// AlertPolicy decides whether a freshly fetched price warrants an alert.
//
// The policy sees only numbers and the triggered flag; the tracker has
// already established that a target exists and a recipient is configured.
// Keeping the rule a named, swappable value means changing the suppression
// behavior never touches the routine's control flow.
type AlertPolicy interface {
	Evaluate(currentPrice, targetPrice float64, alreadyTriggered bool) Decision
}

// AlertPolicyFunc adapts a plain function to AlertPolicy.
type AlertPolicyFunc func(currentPrice, targetPrice float64, alreadyTriggered bool) Decision

func (f AlertPolicyFunc) Evaluate(currentPrice, targetPrice float64, alreadyTriggered bool) Decision {
	return f(currentPrice, targetPrice, alreadyTriggered)
}

// FireOnce is the default policy: alert when the price is at or below
// target and no alert has ever fired for this product.
//
// KNOWN LIMITATION:
// the triggered check is global per product. Once an alert has fired, the
// product never alerts again — not when the price climbs back above target
// and drops once more, and not when the user lowers the target further.
// ResetOnRecovery below is the opt-in fix.
var FireOnce AlertPolicy = AlertPolicyFunc(
	func(currentPrice, targetPrice float64, alreadyTriggered bool) Decision {
		return Decision{
			Fire: currentPrice <= targetPrice && !alreadyTriggered,
		}
	})

// ResetOnRecovery behaves like FireOnce while the price sits at or below
// target, but clears the triggered state whenever the price rises strictly
// above it — so each subsequent drop below target alerts again.
var ResetOnRecovery AlertPolicy = AlertPolicyFunc(
	func(currentPrice, targetPrice float64, alreadyTriggered bool) Decision {
		if currentPrice > targetPrice {
			return Decision{Reset: alreadyTriggered}
		}
		return Decision{
			Fire: !alreadyTriggered,
		}
	})

// PolicyByName maps a configuration string to a policy value.
// Recognised names: "fire-once" (default when empty), "reset-on-recovery".
func PolicyByName(name string) (AlertPolicy, error) {
	switch name {
	case "", "fire-once":
		return FireOnce, nil
	case "reset-on-recovery":
		return ResetOnRecovery, nil
	default:
		return nil, fmt.Errorf("tracker: unknown alert policy %q", name)
	}
}
