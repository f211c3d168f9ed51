package runtime

// Sender is the narrow host capability Send needs: submit a payload for
// on-demand delivery (as opposed to polling) and receive a token that later
// correlates the SendResponse event.
type Sender interface {
	SubmitSend(strategy string, payload any) (token string, err error)
}

// Send implements the strategy's synchronous-looking request helper.
// Called from inside a strategy's own goroutine.
func Send(sender Sender, timer *Timer, payload any) (any, error) {
	name := mustCurrent()

	token, err := sender.SubmitSend(name, payload)
	if err != nil {
		return nil, err
	}

	timer.Pause()
	result := Yield(func(ev Event) (any, bool) {
		if ev.Kind != EventSendResponse || ev.Token != token {
			return nil, false
		}
		return ev, true
	})
	timer.Resume()

	resp := result.(Event)
	if resp.Error {
		return nil, &TransportError{
			URL:     resp.URL,
			Status:  resp.Status,
			Content: resp.Content,
			Kind:    classifyTransportError(resp),
		}
	}
	return resp.Content, nil
}

// classifyTransportError maps a failed SendResponse onto a typed
// TransportErrorKind instead of matching on status/content strings.
func classifyTransportError(ev Event) TransportErrorKind {
	switch {
	case ev.Status == 0:
		return TransportErrorNetwork
	case ev.Status == 408 || ev.Status == 504:
		return TransportErrorTimeout
	case ev.Status >= 400:
		return TransportErrorHTTPStatus
	default:
		return TransportErrorOther
	}
}
