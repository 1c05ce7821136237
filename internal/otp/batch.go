package otp

// Request is one entry of a batch generation.
type Request struct {
	Key    string
	Secret string
	Params Params
}

// Result is the outcome for one Request. Err is set instead of Code when the
// entry could not be generated.
type Result struct {
	Key string
	Code
	Err error
}

// GenerateBatch computes codes for all requests at the same instant so that
// no entry lands in a different window than its neighbours. A failing entry
// yields a Result with Err set; the others are unaffected.
func GenerateBatch(reqs []Request, unix int64) []Result {
	out := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		code, err := Generate(req.Secret, unix, req.Params)
		res := Result{Key: req.Key, Code: code, Err: err}
		if err != nil {
			res.SecondsRemaining = SecondsRemaining(unix, req.Params.Normalize().Period)
		}
		out = append(out, res)
	}
	return out
}
