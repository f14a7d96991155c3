package schema

// Defaults returns fresh copies of the built-in schemas
func Defaults() []*Schema {
	return []*Schema{rfqSchema()}
}

func rfqSchema() *Schema {
	return &Schema{
		Intent: "RFQ",
		Fields: []Field{
			{Name: "rfq_id", Type: TypeString, Required: true},
			{Name: "customer_name", Type: TypeString, Required: true},
			{
				Name:     "items",
				Type:     TypeList,
				Required: true,
				Items: &Field{
					Type: TypeObject,
					Fields: []Field{
						{Name: "product_id", Type: TypeString, Required: true},
						{Name: "quantity", Type: TypeInteger, Required: true},
						{Name: "description", Type: TypeString},
					},
				},
			},
			{Name: "due_date", Type: TypeString},
			{Name: "contact_email", Type: TypeString},
			{
				Name: "shipping_address",
				Type: TypeObject,
				Fields: []Field{
					{Name: "street", Type: TypeString},
					{Name: "city", Type: TypeString},
					{Name: "state", Type: TypeString},
					{Name: "zip", Type: TypeString},
				},
			},
			{Name: "notes", Type: TypeString},
		},
	}
}
