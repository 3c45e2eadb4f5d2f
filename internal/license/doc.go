// Package license defines the license record held per device and the pure
// evaluator that maps a record (or its absence) and an instant to exactly one
// of the four license statuses: valid, expired, inactive or unauthorised.
//
// The evaluator never touches persistence. Callers load the record from the
// store, hand it to Evaluate, and decide from the Evaluation whether session
// mutations are allowed. Only a valid status grants.
package license
