package identity

import (
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

const (
	passwordLength = 14

	// AccessKeyWidth is the total length of generated cloud access keys.
	// Enrichment rewrites the final characters in place, so the width is
	// part of the contract.
	AccessKeyWidth = 20

	accessKeyStem  = "AKIA"
	secretKeyWidth = 40

	certBodyBytes = 912
	keyBodyBytes  = 1056
)

// Profile is the synthetic victim identity shared by every artifact produced
// in a single deployment run. All fields are plausible fakes; none of them
// grant access to anything.
type Profile struct {
	Company         string
	AdminName       string
	AdminEmail      string
	DBHost          string
	DBPassword      string
	AWSAccessKey    string
	AWSSecretKey    string
	SentryKey       string
	SentryProjectID int
	InternalAddr    string
	TLSCert         string
	PrivateKey      string
}

// Clone returns an independent copy for per artifact enrichment. Profile
// holds no reference fields, so the assignment copy shares nothing.
func (pr Profile) Clone() Profile { return pr }

// Provider is the single source of randomness and fake data for a
// deployment run. Seeded providers reproduce identical output, which the
// tests rely on.
type Provider struct {
	faker *gofakeit.Faker
	rng   *rand.Rand
}

// NewProvider returns an entropy seeded provider.
func NewProvider() *Provider {
	return NewSeededProvider(time.Now().UnixNano())
}

// NewSeededProvider returns a deterministic provider for the given seed.
func NewSeededProvider(seed int64) *Provider {
	return &Provider{
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// BaseProfile synthesizes the identity shared by a whole deployment run.
// It touches neither the filesystem nor the network.
func (p *Provider) BaseProfile() Profile {
	name := p.faker.Name()
	return Profile{
		Company:         p.faker.Company(),
		AdminName:       name,
		AdminEmail:      p.companyEmail(name),
		DBHost:          fmt.Sprintf("db-prod-%s.%s", p.faker.Word(), p.faker.DomainName()),
		DBPassword:      p.faker.Password(true, true, true, true, false, passwordLength),
		AWSAccessKey:    accessKeyStem + p.faker.Password(false, true, true, false, false, AccessKeyWidth-len(accessKeyStem)),
		AWSSecretKey:    p.faker.Password(true, true, true, false, false, secretKeyWidth),
		SentryKey:       p.hexToken(16),
		SentryProjectID: p.faker.Number(10000, 99999),
		InternalAddr:    fmt.Sprintf("10.%d.%d.%d", p.rng.Intn(256), p.rng.Intn(256), 1+p.rng.Intn(254)),
		TLSCert:         p.pemBlock("CERTIFICATE", certBodyBytes),
		PrivateKey:      p.pemBlock("RSA PRIVATE KEY", keyBodyBytes),
	}
}

// Intn returns a random int in [0,n).
func (p *Provider) Intn(n int) int { return p.rng.Intn(n) }

// Between returns a random int in [lo,hi].
func (p *Provider) Between(lo, hi int) int {
	return lo + p.rng.Intn(hi-lo+1)
}

func (p *Provider) companyEmail(adminName string) string {
	var local strings.Builder
	for _, r := range strings.ToLower(adminName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			local.WriteRune(r)
		case r == ' ':
			local.WriteByte('.')
		}
	}
	return local.String() + "@" + p.faker.DomainName()
}

func (p *Provider) hexToken(bytes int) string {
	buf := make([]byte, bytes)
	p.rng.Read(buf)
	return hex.EncodeToString(buf)
}

// pemBlock renders a random body in PEM armor. The block parses like the
// real thing but decodes to noise.
func (p *Provider) pemBlock(label string, bytes int) string {
	raw := make([]byte, bytes)
	p.rng.Read(raw)
	return string(pem.EncodeToMemory(&pem.Block{Type: label, Bytes: raw}))
}
