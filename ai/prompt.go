package ai

const organizeSystemPrompt = `You structure a person's captured note into JSON.
Reply with a single JSON object and nothing else, using these optional keys:
  "summary":   one-sentence recap of the note
  "keywords":  array of short topic strings
  "companies": array of company names mentioned
  "skills":    array of skills mentioned
  "research":  array of {"topic", "detail"} worth looking into
  "follow_ups": array of {"text", "due_date"} suggested tasks, due_date as YYYY-MM-DD or omitted
  "memories":  array of {"text", "category"} facts worth remembering about people or events
Omit any key with nothing to report. Do not invent facts that are not in the note.`
