package capability

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Keywords understood in preference lists.
const (
	// PreferAny appends every candidate not named so far, in registry order.
	PreferAny = "any"
	// PreferNone stops the list; nothing after it is probed.
	PreferNone = "none"
)

// ParsePreference splits a comma-separated preference list such as
// "vk_xcb,vk_wl,any" into its trimmed, non-empty items.
func ParsePreference(list string) []string {
	var items []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// probeOrder applies a preference list to the registry order. Without a list
// the registry order is returned unchanged, strict or not. Unless strict is
// set, an implicit "any" ends the list.
func probeOrder(capName Name, entries []*entry, prefs []string, strict bool) []*entry {
	if len(prefs) == 0 {
		return entries
	}
	if !strict {
		prefs = append(prefs, PreferAny)
	}

	order := make([]*entry, 0, len(entries))
	used := make(map[*entry]bool, len(entries))
	for _, item := range prefs {
		switch item {
		case PreferNone:
			return order
		case PreferAny:
			for _, e := range entries {
				if !used[e] {
					order = append(order, e)
				}
			}
			return order
		}

		found := false
		for _, e := range entries {
			if e.info.Matches(item) {
				found = true
				if !used[e] {
					used[e] = true
					order = append(order, e)
				}
				break
			}
		}
		if !found {
			log.Warn().Str("capability", string(capName)).Str("candidate", item).Msg("preferred candidate is not registered")
		}
	}
	return order
}
