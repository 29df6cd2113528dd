package bot

import "github.com/bwmarrin/discordgo"

// Responder provides an abstraction for responding to Discord interactions.
// This interface enables testing handlers without a live Discord connection.
type Responder interface {
	// Respond sends a response to an interaction.
	Respond(response *discordgo.InteractionResponse) error

	// Defer acknowledges the interaction so a Followup can arrive later.
	// Handlers that hit the network before answering should defer first.
	Defer() error

	// Followup sends an embed after a deferred acknowledgement.
	Followup(embed *discordgo.MessageEmbed) error
}

// DiscordResponder implements Responder using a live Discord session.
type DiscordResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

// NewDiscordResponder creates a new DiscordResponder.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{
		session:     s,
		interaction: i,
	}
}

// Respond sends a response to the interaction via Discord API.
func (r *DiscordResponder) Respond(response *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(r.interaction, response)
}

// Defer acknowledges the interaction without content.
func (r *DiscordResponder) Defer() error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// Followup sends an embed as a followup message.
func (r *DiscordResponder) Followup(embed *discordgo.MessageEmbed) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	return err
}

// MockResponder is a test double for Responder.
type MockResponder struct {
	LastResponse *discordgo.InteractionResponse
	LastFollowup *discordgo.MessageEmbed
	Deferred     bool
	Err          error
}

// Respond records the response for testing.
func (m *MockResponder) Respond(response *discordgo.InteractionResponse) error {
	m.LastResponse = response
	return m.Err
}

// Defer records the acknowledgement for testing.
func (m *MockResponder) Defer() error {
	m.Deferred = true
	return m.Err
}

// Followup records the followup embed for testing.
func (m *MockResponder) Followup(embed *discordgo.MessageEmbed) error {
	m.LastFollowup = embed
	return m.Err
}
