package httpx

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/xeipuuv/gojsonschema"
)

const placeOrderSchema = `{
  "type": "object",
  "required": ["cartItems", "subtotal", "deliveryAddress"],
  "properties": {
    "currentUser": {
      "type": "object",
      "properties": {
        "_id": {"type": "string"},
        "name": {"type": "string"},
        "email": {"type": "string"}
      }
    },
    "cartItems": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["itemId", "qty", "price"],
        "properties": {
          "itemId": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "variant": {"type": "string"},
          "qty": {"type": "integer", "minimum": 1},
          "price": {"type": ["number", "string"]}
        }
      }
    },
    "subtotal": {"type": ["number", "string"]},
    "deliveryAddress": {
      "type": "object",
      "required": ["name", "contact", "line1"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "contact": {"type": "string", "minLength": 1},
        "line1": {"type": "string", "minLength": 1},
        "geo": {
          "type": "object",
          "required": ["lat", "lng"],
          "properties": {"lat": {"type": "number"}, "lng": {"type": "number"}}
        }
      }
    }
  }
}`

var placeOrderLoader = gojsonschema.NewStringLoader(placeOrderSchema)

func validateJSONSchema(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: body is not valid json", orders.ErrValidation)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", orders.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}
