package agents

// System prompts. Each agent receives its input as a JSON object in the user
// message and must answer with a single JSON object.

const promptRephrase = `Rephrase the user's query into a succinct statement suitable for the documentation of the API they are using. Favor clarity and brevity.
Input: {"query": string}
Answer with JSON: {"rephrased_query": string}`

const promptSelectEndpoints = `You are given documentation of API endpoints with their response schemas, and a query.
Pick the endpoint URL that can best answer the query, even if the query is vague.
Copy the URL exactly as it appears after "Endpoint URL:" in the documentation. Never alter it and never answer with a URL that is not in the documentation.
Input: {"documentation": string, "query": string}
Answer with JSON: {"endpoints": [string]} containing exactly one URL.`

const promptSynthesizeRequest = `Extract the request parameters and request body for an API call from a query.
Use request_parameters_schema for the query parameters and request_body_schema for the body. If a schema is given, its output must not be empty. Include only values stated in the query; add nothing else.
Input: {"request_parameters_schema": string, "request_body_schema": string, "query": string}
Answer with JSON: {"request_parameters": object, "request_body": object}`

const promptDecideAction = `Decide whether a query needs a computation or transformation over retrieved data (totals, averages, differences, filtering, conversions) or whether retrieving the data is enough to answer it.
Examples: "Show me my orders" -> false. "What is the average order amount in November?" -> true. "How much did I spend last month?" -> true.
Input: {"query": string}
Answer with JSON: {"needs_action": boolean}`

const promptGenerateProgram = `Write a single expression in the expr language (https://expr-lang.org) that computes what the query asks for.
The expression reads one variable, records: an array of objects. Every object has the fields listed in dataset_fields. Access fields with .name inside closures or record.name, and use only the field names listed. Builtins such as filter, map, sum, len, count, any, all, hasPrefix, date and let-bindings are available.
The value of the expression is the answer. Evaluate to nil when the records cannot answer the query. Guard divisions against empty arrays.
Example: {"query": "average order amount in November 2024", "dataset_fields": [{"name": "created_at"}, {"name": "total_amount"}]}
-> let nov = filter(records, hasPrefix(.created_at, "2024-11")); len(nov) == 0 ? 0 : sum(map(nov, .total_amount)) / len(nov)
Input: {"query": string, "dataset_fields": [{"name": string, "type": string, "description": string}]}
Answer with JSON: {"code": string}`

const promptSynthesizeResponse = `Answer the query for the user using only the given context. The context holds API responses or records. Be concise and do not mention APIs, endpoints or JSON.
Input: {"query": string, "context": any}
Answer with JSON: {"answer": string}`

const promptSynthesizeComputed = `A computation was run over the user's data to answer the query, and its result is given. Explain the result to the user in one or two sentences.
Input: {"query": string, "computed": any}
Answer with JSON: {"answer": string}`

const promptSynthesizeNotComputed = `The user's data did not contain enough information to answer the query. Tell the user briefly what is missing, without inventing numbers.
Input: {"query": string}
Answer with JSON: {"answer": string}`

const promptFollowUps = `Suggest the three queries the user is most likely to ask next. They must relate to the query without extending it, and match its kind: data questions yield data questions, actions yield actions.
Example: "Place an order of iPhone." -> ["Place an order of an iPhone charger.", "Place an order of an iPhone cover.", "Place an order of AirPods."]
Input: {"query": string}
Answer with JSON: {"follow_up": [string, string, string]}`
