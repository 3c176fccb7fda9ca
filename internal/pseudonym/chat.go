package pseudonym

import (
	"strconv"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/textrepair"
)

// ChatRegistry hands out "{chatAlias} {initial}{n}" labels and remembers the
// masked participant names shown for each.
type ChatRegistry struct {
	donorAlias string
	chatAlias  string
	initial    string
	counter    int
	mapping    map[string][]string
}

func NewChatRegistry(donorAlias, chatAlias string, source core.DataSource) *ChatRegistry {
	return &ChatRegistry{
		donorAlias: donorAlias,
		chatAlias:  chatAlias,
		initial:    source.Initial(),
		counter:    1,
		mapping:    make(map[string][]string),
	}
}

// Pseudonym assigns the next chat label. originalNames must be genuine,
// not already pseudonymized, names.
func (c *ChatRegistry) Pseudonym(originalNames []string) string {
	p := c.chatAlias + " " + c.initial + strconv.Itoa(c.counter)
	c.counter++
	masked := make([]string, 0, len(originalNames))
	for _, name := range originalNames {
		masked = append(masked, Mask(textrepair.Decode(name)))
	}
	c.mapping[p] = masked
	return p
}

// SetDonorName records the donor's own masked name under the donor alias.
func (c *ChatRegistry) SetDonorName(name string) {
	c.mapping[c.donorAlias] = []string{Mask(textrepair.Decode(name))}
}

// Mapping returns a copy of chat label to masked names.
func (c *ChatRegistry) Mapping() map[string][]string {
	out := make(map[string][]string, len(c.mapping))
	for k, v := range c.mapping {
		out[k] = append([]string(nil), v...)
	}
	return out
}
