package cmd

import (
	"fmt"
	"strings"

	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/spf13/pflag"
)

// visibilityValue parses "everyone", "private", "only:bob,carol" or
// "except:bob".
type visibilityValue struct {
	mode  records.Visibility
	peers []string
}

var _ pflag.Value = (*visibilityValue)(nil)

func (v *visibilityValue) String() string {
	if v.mode == "" {
		return string(records.VisibilityEveryone)
	}
	if len(v.peers) == 0 {
		return string(v.mode)
	}
	return string(v.mode) + ":" + strings.Join(v.peers, ",")
}

func (v *visibilityValue) Set(s string) error {
	name, list, hasList := strings.Cut(s, ":")
	mode, err := records.ParseVisibility(name)
	if err != nil {
		return err
	}
	peers := utils.SplitIDs(list)
	switch mode {
	case records.VisibilityOnly, records.VisibilityExcept:
		if len(peers) == 0 {
			return fmt.Errorf("%s needs a peer list, e.g. %s:bob,carol", mode, mode)
		}
	default:
		if hasList {
			return fmt.Errorf("%s takes no peer list", mode)
		}
	}
	v.mode, v.peers = mode, peers
	return nil
}

func (v *visibilityValue) Type() string {
	return "visibility"
}

func (v *visibilityValue) reset() {
	v.mode, v.peers = "", nil
}

// get returns the parsed mode, defaulting to everyone.
func (v *visibilityValue) get() (records.Visibility, []string) {
	if v.mode == "" {
		return records.VisibilityEveryone, nil
	}
	return v.mode, v.peers
}
