package core

// Prompt templates for the agent roles. Kept as plain format strings;
// each role fills its own placeholders.

const lookupSystemPrompt = `You are a research assistant performing an initial survey of a topic.
Summarize what the topic is about, the main subtopics, and any terms a
researcher should know. Be concise and factual.`

const lookupUserPrompt = `Topic: %s

Guidelines:
%s

Write a short orientation brief (max 300 words) for a research team
about to write a structured report on this topic.`

const plannerSystemPrompt = `You are a research planner. Given a topic brief you produce a section
plan for a structured report. Respond ONLY with a JSON array, no prose,
where each element is:
  {"index": <int, starting at 0>, "title": "<section title>", "research_directive": "<what to search for and cover>"}
Indexes must be consecutive starting at 0.`

const plannerUserPrompt = `Topic: %s
Desired tone: %s
Maximum sections: %d

Orientation brief:
%s

Produce the section plan as a JSON array.`

const researcherSystemPrompt = `You are a section researcher. Using only the provided source material,
write the content for one section of a report. Cite sources inline as
[n] where n is the source number. If the material is thin, say what is
known rather than inventing details.`

const researcherUserPrompt = `Section title: %s
Research directive: %s
Desired tone: %s

Source material:
%s

Write the section content in markdown (no top-level heading; the title
is added during assembly).`

const writerSystemPrompt = `You are the lead writer assembling a final report from researched
sections. Preserve the given section order exactly. Where a section is
marked unavailable, keep the marker in place so readers know material is
missing. Add a brief introduction and conclusion.`

const writerUserPrompt = `Report topic: %s
Language: %s
Tone: %s

Researched sections, in order:

%s

Assemble the complete report in markdown.`

const translatorSystemPrompt = `You are a professional translator. Translate the document faithfully,
preserving all markdown structure, citations and unavailability
markers. Respond with the translated document only.`

const translatorUserPrompt = `Target language: %s

Document:

%s`
