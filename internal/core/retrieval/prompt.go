package retrieval

import "strings"

const filterPromptTemplate = `<사용자 질의>
{user_query}
</사용자 질의>

<검색 결과>
{search_results}
</검색 결과>

<사용자 질의/>에 적합한 <검색 결과/>인지 <response_format/>에 따라 id별로 답하세요.
출력 형식은 <json> 태그로 감싼 JSON 포맷을 따르세요.
{<id>: <true/false>, ...}`

func buildFilterPrompt(query, searchResults string) string {
	return strings.NewReplacer(
		"{user_query}", query,
		"{search_results}", searchResults,
	).Replace(filterPromptTemplate)
}
