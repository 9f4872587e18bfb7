package notificator

import (
	"fmt"
	"strings"
	"time"

	"github.com/core-coin/donum/internal/models"
)

// RenderDirect returns the text of a private message.
func RenderDirect(msg models.DirectMessage) (string, error) {
	switch m := msg.(type) {
	case models.CredentialsMessage:
		var b strings.Builder
		fmt.Fprintf(&b, "Hi @%s, your wallet is ready.\n\n", m.Handle)
		fmt.Fprintf(&b, "Address: %s\n", m.Address)
		switch a := m.Account.(type) {
		case models.OnChain:
			fmt.Fprintf(&b, "Activation: %s\n", a.ID)
		case models.KeysOnly, nil:
			b.WriteString("Activation: pending, the address will be activated with its first transfer\n")
		}
		fmt.Fprintf(&b, "\nOpen this link to reveal your private key and recovery password:\n%s\n\n", m.ClaimURL)
		fmt.Fprintf(&b, "The link works for %s and shows the secret only to whoever opens it. Do not share it.", humanDuration(m.TTL))
		return b.String(), nil
	case models.SetupGuideMessage:
		return fmt.Sprintf("@%s, a few tips for your new wallet %s:\n"+
			"1. Import the private key into a wallet app.\n"+
			"2. Store the recovery password offline.\n"+
			"3. Nobody from the team will ever ask for your key.", m.Handle, m.Address), nil
	case models.PreEventReminderMessage:
		return fmt.Sprintf("@%s, reminder: the event starts on %s UTC. Fund your wallet %s before then to take part.",
			m.Handle, m.EventTime.UTC().Format("2006-01-02 15:04"), m.Address), nil
	case models.PostEventConfirmationMessage:
		return fmt.Sprintf("@%s, thanks for taking part. Your wallet %s is registered for the distribution.", m.Handle, m.Address), nil
	case models.WaitlistWelcomeMessage:
		return fmt.Sprintf("@%s, you are on the waitlist. We will message you when it is your turn.", m.Handle), nil
	default:
		return "", fmt.Errorf("unknown direct message kind %T", msg)
	}
}

// RenderReply returns the text of a public reply.
func RenderReply(reply models.PublicReply) (string, error) {
	switch r := reply.(type) {
	case models.WalletReadyReply:
		return fmt.Sprintf("@%s your wallet is ready. Check your direct messages for the details.", r.Handle), nil
	case models.AlreadyHasWalletReply:
		return fmt.Sprintf("@%s you already have a wallet. Check your direct messages.", r.Handle), nil
	case models.RateLimitedReply:
		return fmt.Sprintf("@%s you have reached the limit for new wallets. Please try again later.", r.Handle), nil
	case models.DailyLimitReply:
		return fmt.Sprintf("@%s we have reached today's wallet limit. Please try again tomorrow.", r.Handle), nil
	case models.WaitlistReply:
		if r.AlreadyJoined {
			return fmt.Sprintf("@%s you are already on the waitlist.", r.Handle), nil
		}
		return fmt.Sprintf("@%s you have been added to the waitlist.", r.Handle), nil
	case models.ProvisioningFailedReply:
		return fmt.Sprintf("@%s something went wrong while creating your wallet. Please try again later.", r.Handle), nil
	default:
		return "", fmt.Errorf("unknown reply kind %T", reply)
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a limited time"
	case d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	default:
		return fmt.Sprintf("%d minutes", int(d.Round(time.Minute)/time.Minute))
	}
}
