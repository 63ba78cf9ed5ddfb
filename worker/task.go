package worker

import "encoding/json"

func unmarshalTask(body []byte, v interface{}) error {
	return json.Unmarshal(body, v)
}
