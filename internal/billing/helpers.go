package billing

import "regexp"

var stripeIDPattern = regexp.MustCompile(`^[a-z]+_[A-Za-z0-9_-]{1,120}$`)

// validStripeID reports whether id has the shape of a Stripe object ID
// (a lowercase prefix such as cus or evt, an underscore, then a token).
func validStripeID(id string) bool {
	return stripeIDPattern.MatchString(id)
}
