package scoring_client

const (
	EndpointSubmitAnswer = "/v1/answers"
)
