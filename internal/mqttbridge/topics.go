// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
)

// Topic suffixes below the configured prefix.
const (
	topicSetSuffix         = "/set"
	topicOutputs           = "outputs"
	topicInputs            = "inputs"
	topicGates             = "gates"
	topicAudioFollowsVideo = "audio-follows-video"
	topicPoll              = "poll"
	topicClear             = "clear"
	topicConnected         = "connected"
	topicOnline            = "online"
	topicStatus            = "status"
	topicBridge            = "bridge"
)

var errUnknownTopic = errors.New("unknown command topic")

type commandKind int

const (
	cmdRoute commandKind = iota
	cmdGate
	cmdAudioFollowsVideo
	cmdPoll
	cmdClear
)

// command is a parsed inbound control message.
type command struct {
	kind   commandKind
	output int
	input  int
	signal purelink.SignalType
	on     bool
	all    bool // poll/clear without a specific level
}

// message is one outbound publish.
type message struct {
	topic    string
	payload  []byte
	retained bool
}

type routePayload struct {
	Input int    `json:"input"`
	Name  string `json:"name"`
}

// subscriptions returns the command topic filters under prefix.
func subscriptions(prefix string) []string {
	return []string{
		prefix + "/" + topicOutputs + "/+/+" + topicSetSuffix,
		prefix + "/" + topicGates + "/+" + topicSetSuffix,
		prefix + "/" + topicAudioFollowsVideo + topicSetSuffix,
		prefix + "/" + topicPoll + topicSetSuffix,
		prefix + "/" + topicClear + topicSetSuffix,
	}
}

// parseCommand decodes a command topic and its payload.
func parseCommand(prefix, topic string, payload []byte) (command, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return command{}, fmt.Errorf("%w: %s", errUnknownTopic, topic)
	}
	rest, ok = strings.CutSuffix(rest, topicSetSuffix)
	if !ok {
		return command{}, fmt.Errorf("%w: %s", errUnknownTopic, topic)
	}
	value := strings.TrimSpace(string(payload))
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 3 && parts[0] == topicOutputs:
		output, err := strconv.Atoi(parts[1])
		if err != nil {
			return command{}, fmt.Errorf("bad output %q: %w", parts[1], err)
		}
		signal, err := purelink.ParseSignalType(parts[2])
		if err != nil {
			return command{}, err
		}
		input, err := parseInput(value)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdRoute, output: output, input: input, signal: signal}, nil

	case len(parts) == 2 && parts[0] == topicGates:
		signal, err := purelink.ParseSignalType(parts[1])
		if err != nil {
			return command{}, err
		}
		on, err := parseSwitch(value)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdGate, signal: signal, on: on}, nil

	case len(parts) == 1 && parts[0] == topicAudioFollowsVideo:
		on, err := parseSwitch(value)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdAudioFollowsVideo, on: on}, nil

	case len(parts) == 1 && (parts[0] == topicPoll || parts[0] == topicClear):
		kind := cmdPoll
		if parts[0] == topicClear {
			kind = cmdClear
		}
		cmd := command{kind: kind, all: true}
		if value != "" && value != "all" && value != "av" {
			signal, err := purelink.ParseSignalType(value)
			if err != nil {
				return command{}, err
			}
			cmd.signal = signal
			cmd.all = false
		}
		return cmd, nil
	}

	return command{}, fmt.Errorf("%w: %s", errUnknownTopic, topic)
}

// parseInput accepts an input index; "none" and "off" mean NoSource.
func parseInput(value string) (int, error) {
	switch strings.ToLower(value) {
	case "none", "off":
		return purelink.NoSource, nil
	}
	input, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("bad input %q: %w", value, err)
	}
	return input, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "on", "open":
		return true, nil
	case "0", "false", "off", "closed":
		return false, nil
	}
	return false, fmt.Errorf("bad switch value %q", value)
}

// eventMessages maps a device event to the retained state topics it updates.
func eventMessages(prefix string, e router.Event) ([]message, error) {
	retain := func(topic string, payload []byte) message {
		return message{topic: prefix + "/" + topic, payload: payload, retained: true}
	}

	switch e.Kind {
	case router.EventVideoRoute, router.EventAudioRoute:
		level := purelink.SignalVideo
		if e.Kind == router.EventAudioRoute {
			level = purelink.SignalAudio
		}
		payload, err := json.Marshal(routePayload{Input: e.Value, Name: e.Name})
		if err != nil {
			return nil, err
		}
		return []message{retain(fmt.Sprintf("%s/%d/%s", topicOutputs, e.Index, level), payload)}, nil
	case router.EventOutputName:
		return []message{retain(fmt.Sprintf("%s/%d/name", topicOutputs, e.Index), []byte(e.Name))}, nil
	case router.EventInputName:
		return []message{retain(fmt.Sprintf("%s/%d/name", topicInputs, e.Index), []byte(e.Name))}, nil
	case router.EventConnected:
		return []message{retain(topicConnected, boolPayload(e.On))}, nil
	case router.EventOnline:
		return []message{
			retain(topicOnline, boolPayload(e.On)),
			retain(topicStatus, []byte(e.Status)),
		}, nil
	case router.EventAudioFollowsVideo:
		return []message{retain(topicAudioFollowsVideo, boolPayload(e.On))}, nil
	}
	return nil, nil
}

func boolPayload(on bool) []byte {
	return []byte(strconv.FormatBool(on))
}
