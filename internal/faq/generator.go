package faq

import (
	"context"
	"fmt"
	"strings"
)

// Prompt is the input of one FAQ generation.
type Prompt struct {
	CompanyName    string
	ProductDetails string
}

// Generator produces the FAQ text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

const systemInstruction = "You are an expert at creating clear, professional FAQ sections that address key customer concerns."

func buildPrompt(p Prompt) string {
	var b strings.Builder
	b.WriteString("Create a comprehensive FAQ section for the following company and product:\n\n")
	fmt.Fprintf(&b, "Company Name: %s\n", p.CompanyName)
	fmt.Fprintf(&b, "Product Details: %s\n\n", p.ProductDetails)
	b.WriteString("Generate 5-7 of the most relevant questions and detailed answers that potential customers might have.\n")
	b.WriteString("Format the output in a clear, professional manner with questions numbered and answers properly spaced.\n")
	return b.String()
}

// TemplateGenerator renders a fixed FAQ without calling a model. It is used
// when no text generation provider is configured.
type TemplateGenerator struct{}

func (TemplateGenerator) Name() string { return "template" }

func (TemplateGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	company := strings.TrimSpace(p.CompanyName)
	details := strings.TrimSpace(p.ProductDetails)

	entries := []struct{ q, a string }{
		{
			fmt.Sprintf("What does %s offer?", company),
			details,
		},
		{
			fmt.Sprintf("Who is %s for?", company),
			fmt.Sprintf("%s is built for customers who need what is described above and want a dependable provider.", company),
		},
		{
			"How do I get started?",
			"Sign up on our website and follow the onboarding steps. Our team is available if you need help along the way.",
		},
		{
			"How is pricing structured?",
			"Pricing depends on the plan you choose. Visit our pricing page for current plans and billing options.",
		},
		{
			fmt.Sprintf("How can I contact %s support?", company),
			"Reach our support team through the contact page. We aim to answer every request within one business day.",
		},
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, e.q, e.a)
	}
	return b.String(), nil
}
