package runtime

// Want is a predicate registered by a suspended strategy task. The executor
// offers every in-flight event to every suspended strategy's want; if it
// returns ok, the want is cleared and the task resumes with value. At most
// one want is outstanding per strategy at any time.
type Want func(ev Event) (value any, ok bool)

// wantKey is the reserved store key a strategy's outstanding want is kept
// under.
type wantKeyType struct{}

var wantKey = wantKeyType{}

// setWant records want as the current strategy's outstanding want.
func setWant(name string, want Want) {
	storeFor(name).Set(wantKey, want)
}

// peekWant returns the want outstanding for name without clearing it.
func peekWant(name string) (Want, bool) {
	v, ok := storeFor(name).Get(wantKey)
	if !ok {
		return nil, false
	}
	w, ok := v.(Want)
	return w, ok
}

// clearWant removes the want outstanding for name. Called once a want has
// matched an event and the task is about to be resumed.
func clearWant(name string) {
	storeFor(name).Delete(wantKey)
}

// hasWant reports whether name currently has an outstanding want.
func hasWant(name string) bool {
	_, ok := storeFor(name).Get(wantKey)
	return ok
}
