package main

import (
	"context"
	"strings"
	"time"

	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/upstream"
)

type probeResult struct {
	Model    string
	Variant  string
	Success  bool
	Duration time.Duration
	Reason   string
	Thinking bool
}

type probeVariant struct {
	Key    string
	Header string
	run    func(ctx context.Context, c *upstream.Client, modelName, prompt string) probeResult
}

var probeVariants = []probeVariant{
	{Key: "stream", Header: "Stream", run: probeStream},
	{Key: "request", Header: "Request", run: probeRequest},
}

func probeInput(modelName, prompt string) upstream.ChatInput {
	return upstream.ChatInput{
		Model:    modelName,
		Messages: []model.Message{model.NewTextMessage(model.RoleUser, prompt)},
	}
}

// probeStream passes when the stream finishes cleanly with visible content.
func probeStream(ctx context.Context, c *upstream.Client, modelName, prompt string) probeResult {
	res := probeResult{Model: modelName, Variant: "stream"}
	start := time.Now()

	s := c.Stream(ctx, probeInput(modelName, prompt))
	var content strings.Builder
	for ev := range s.Events() {
		switch ev.Kind {
		case model.EventContent:
			content.WriteString(ev.Text)
		case model.EventThinking:
			res.Thinking = true
		}
	}
	res.Duration = time.Since(start)

	switch {
	case s.Phase() != upstream.PhaseDone:
		res.Reason = strings.TrimSpace(content.String())
		if res.Reason == "" && s.Err() != nil {
			res.Reason = s.Err().Error()
		}
	case strings.TrimSpace(content.String()) == "":
		res.Reason = "empty content"
	default:
		res.Success = true
	}
	return res
}

func probeRequest(ctx context.Context, c *upstream.Client, modelName, prompt string) probeResult {
	res := probeResult{Model: modelName, Variant: "request"}
	start := time.Now()
	answer, err := c.Request(ctx, probeInput(modelName, prompt))
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		res.Reason = answer
	case strings.TrimSpace(answer) == "":
		res.Reason = "empty content"
	default:
		res.Success = true
	}
	return res
}
