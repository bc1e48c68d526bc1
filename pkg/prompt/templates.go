package prompt

// SystemInstruction is shared by every report type.
const SystemInstruction = `You are a careful, neutral fact-checking analyst.
Separate verifiable claims from opinion, say plainly when evidence is missing,
cite sources inline where you rely on them, and write in the language of the user's input.`

var reportTemplates = map[ReportType]string{
	FullCheck: `Produce a full fact-check report for the material below.

Structure the report with these sections:
## Summary
## Claims Identified
## Verification (one sub-section per claim, with verdict: True / Mostly True / Misleading / False / Unverifiable)
## Context and Missing Information
## Sources
## Overall Assessment`,

	ContextReport: `Produce a context report for the material below. Do not issue verdicts;
explain background, timeline, the actors involved and what a reader needs to know to judge it.

Structure the report with these sections:
## Summary
## Background
## Key Facts
## Perspectives
## Sources`,

	CommunityNote: `Write a community note for the material below, in the style used on social
platforms: at most 280 words, neutral, understandable to readers across perspectives,
and backed by at least one high-quality source link.

Reply with:
## Proposed Note
## Why This Note Helps
## Sources`,
}

const imageOnlyInstruction = "No text was provided. Analyze the claims made in the attached image."

const imageAttachedInstruction = "An image is attached; take its contents into account."

var followupCommands = map[string]string{
	"/summarize": "Summarize the report above in at most five bullet points.",
	"/sources":   "List every source used in the report above, with a one-line note on its reliability.",
	"/simplify":  "Rewrite the report above in plain language for a general audience.",
}
