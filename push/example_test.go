package push_test

import (
	"fmt"

	"github.com/traf3li/clientops/push"
)

func ExampleParsePayload() {
	p := push.ParsePayload([]byte(`{"message":"Invoice paid","type":"invoice","link":"/invoices/12"}`))
	fmt.Println(p.Body, p.Tag, p.URL)

	p = push.ParsePayload([]byte("plain text"))
	fmt.Println(p.Body, p.URL)
	// Output:
	// Invoice paid invoice /invoices/12
	// plain text /
}

func ExamplePreferences_Allows() {
	prefs := push.Preferences{"invoice": false}
	fmt.Println(prefs.Allows("invoice"), prefs.Allows("hearing"))
	// Output: false true
}
