package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
)

// Admin commands arrive in the configured admin peer chat and bypass the
// debouncer entirely.
//
//	!mute <chatID> [duration]   mute a conversation (no duration = indefinite)
//	!unmute <chatID>            lift a mute
//	!status <chatID>            show a conversation's mute state
//	!stats                      store-wide conversation counts
//	!help                       this list
func (p *Pipeline) handleAdminCommand(msg bus.InboundMessage) {
	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return
	}

	reply := func(content string) {
		p.bus.PublishOutbound(bus.OutboundMessage{ChatID: msg.ChatID, Content: content})
	}

	switch fields[0] {
	case "!mute":
		if len(fields) < 2 {
			reply("Usage: !mute <chatID> [duration, e.g. 24h]")
			return
		}
		key := p.key(fields[1])
		var d time.Duration
		if len(fields) >= 3 {
			parsed, err := time.ParseDuration(fields[2])
			if err != nil {
				reply(fmt.Sprintf("Bad duration %q: %v", fields[2], err))
				return
			}
			d = parsed
		}
		p.batcher.Cancel(key)
		p.coordinator.Abandon(key)
		p.mutes.Mute(key, d)
		if d > 0 {
			reply(fmt.Sprintf("Muted %s for %s.", fields[1], d))
		} else {
			reply(fmt.Sprintf("Muted %s indefinitely.", fields[1]))
		}

	case "!unmute":
		if len(fields) < 2 {
			reply("Usage: !unmute <chatID>")
			return
		}
		p.mutes.Unmute(p.key(fields[1]))
		reply(fmt.Sprintf("Unmuted %s.", fields[1]))

	case "!status":
		if len(fields) < 2 {
			reply("Usage: !status <chatID>")
			return
		}
		muted, until := p.mutes.Status(p.key(fields[1]))
		switch {
		case !muted:
			reply(fmt.Sprintf("%s: not muted.", fields[1]))
		case until == nil:
			reply(fmt.Sprintf("%s: muted indefinitely.", fields[1]))
		default:
			reply(fmt.Sprintf("%s: muted until %s.", fields[1], until.Format(time.RFC3339)))
		}

	case "!stats":
		conversations, turns := p.log.Stats()
		reply(fmt.Sprintf("Conversations: %d, total turns: %d.", conversations, turns))

	case "!help":
		reply("Commands: !mute <chatID> [duration], !unmute <chatID>, !status <chatID>, !stats, !help")

	default:
		reply(fmt.Sprintf("Unknown command %s. Try !help.", fields[0]))
	}
}
