package handlers

import "net/http"

// Greeting is the body served to admitted callers.
const Greeting = "Hello there!!"

// GreetingsHandler is the protected resource behind admission control.
func GreetingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Greeting))
}
