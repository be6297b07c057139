package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hession/citysim/internal/chat"
	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

func newChatCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [name|id]",
		Short: "Talk to a citizen in character",
		Long:  "Talk to a citizen in character. A random citizen is chosen when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			c, err := a.chatPartner(strings.Join(args, " "))
			if err != nil {
				return err
			}
			s := chat.NewSession(c, a.gen, a.timeout(), logger.Named("chat"))
			return chat.Run(cmd.Context(), s, chat.HistoryFile(config.GetConfigDir()))
		},
	}
}

func (a *App) chatPartner(ref string) (*model.Citizen, error) {
	if ref != "" {
		return a.lookup(ref)
	}
	citizens, err := a.store.List()
	if err != nil {
		return nil, err
	}
	if len(citizens) == 0 {
		return nil, fmt.Errorf("the city is empty: run `citysim init` first")
	}
	return citizens[a.rnd.Intn(len(citizens))], nil
}
